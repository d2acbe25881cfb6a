package sunat

import (
	"fmt"
	"time"

	"github.com/witalo/inova/internal/domain/entity"
	"github.com/witalo/inova/internal/infrastructure/storage"
	"github.com/witalo/inova/pkg/logger"
)

// NewFileRecorder archiva cada respuesta SOAP cruda en la categoría LOGS del
// almacén de la empresa, nombrada por operación y marca de tiempo. Los
// fallos del archivado solo se registran: el envío nunca depende de esto.
func NewFileRecorder(files *storage.FileStore, log *logger.Logger) ResponseRecorder {
	slog := log.Component("sunat")
	return func(company *entity.Company, op string, raw []byte) {
		name := fmt.Sprintf("%s-%s.xml", op, time.Now().Format("20060102-150405.000000000"))
		if _, err := files.Save(company.RUC, storage.CategoryLogs, name, raw); err != nil {
			slog.Warn().Err(err).Str("op", op).Msg("no se pudo archivar la respuesta SOAP")
		}
	}
}
