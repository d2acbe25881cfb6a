package sunat

import (
	"fmt"
	"unicode"
)

// Pesos del algoritmo módulo 11 para el dígito verificador del RUC.
// Se aplican a los 10 primeros dígitos, de izquierda a derecha.
var rucWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidateRUC valida que el RUC tenga 11 dígitos y un dígito verificador
// correcto según el algoritmo módulo 11 de SUNAT. Acepta separadores
// (puntos, guiones, espacios) que se descartan antes de validar.
func ValidateRUC(ruc string) error {
	digits := extractDigits(ruc)
	if len(digits) != 11 {
		return fmt.Errorf("sunat: RUC debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	var sum int
	for i := 0; i < 10; i++ {
		sum += int(digits[i]-'0') * rucWeights[i]
	}
	check := 11 - sum%11
	if check >= 10 {
		check -= 10
	}
	if digits[10] != byte('0'+check) {
		return fmt.Errorf("sunat: dígito verificador del RUC inválido: esperado %d, recibido %c", check, digits[10])
	}
	return nil
}

// NormalizeRUC devuelve solo los dígitos del RUC.
func NormalizeRUC(ruc string) string {
	return string(extractDigits(ruc))
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
