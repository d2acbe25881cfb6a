// Package storage persiste los artefactos de facturación electrónica en el
// árbol {base}/{ruc}/{categoría}/ que el área contable revisa directamente.
package storage

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Categorías de artefactos por comprobante.
const (
	CategoryXML    = "XML"   // XML sin firmar
	CategorySigned = "FIRMA" // XML firmado
	CategoryCDR    = "CDR"   // constancias de recepción
	CategoryLogs   = "LOGS"  // respuestas crudas de SUNAT

	CategoryVoidXML    = "BAJA/XML"
	CategoryVoidSigned = "BAJA/FIRMA"
	CategoryVoidCDR    = "BAJA/CDR"
)

var allCategories = []string{
	CategoryXML, CategorySigned, CategoryCDR, CategoryLogs,
	CategoryVoidXML, CategoryVoidSigned, CategoryVoidCDR,
}

// FileStore guarda y recupera artefactos sobre un afero.Fs; en producción
// el sistema de archivos real, en tests uno en memoria.
type FileStore struct {
	fs       afero.Fs
	basePath string
}

// NewFileStore crea el almacén sobre el filesystem dado.
func NewFileStore(fs afero.Fs, basePath string) *FileStore {
	return &FileStore{fs: fs, basePath: basePath}
}

// EnsureCompanyFolders crea el árbol de carpetas de una empresa.
func (s *FileStore) EnsureCompanyFolders(ruc string) error {
	for _, category := range allCategories {
		dir := filepath.Join(s.basePath, ruc, category)
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creando %s: %w", dir, err)
		}
	}
	return nil
}

// Save escribe un artefacto y devuelve la ruta completa donde quedó.
func (s *FileStore) Save(ruc, category, filename string, content []byte) (string, error) {
	dir := filepath.Join(s.basePath, ruc, category)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creando %s: %w", dir, err)
	}
	path := filepath.Join(dir, filename)
	if err := afero.WriteFile(s.fs, path, content, 0o644); err != nil {
		return "", fmt.Errorf("escribiendo %s: %w", path, err)
	}
	return path, nil
}

// Read recupera un artefacto por su ruta completa.
func (s *FileStore) Read(path string) ([]byte, error) {
	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("leyendo %s: %w", path, err)
	}
	return content, nil
}

// Exists indica si la ruta existe en el almacén.
func (s *FileStore) Exists(path string) (bool, error) {
	return afero.Exists(s.fs, path)
}
