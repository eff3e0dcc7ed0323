package util

import (
	"errors"
	"strings"
)

// NormalizeCPF remove pontuação e valida os dígitos verificadores.
// Retorna o CPF apenas com números.
func NormalizeCPF(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '.' || r == '-' || r == ' ':
		default:
			return "", errors.New("CPF inválido")
		}
	}

	cpf := digits.String()
	if len(cpf) != 11 {
		return "", errors.New("CPF deve ter 11 dígitos")
	}

	allEqual := true
	for i := 1; i < 11; i++ {
		if cpf[i] != cpf[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return "", errors.New("CPF inválido")
	}

	if checkDigit(cpf, 9) != int(cpf[9]-'0') || checkDigit(cpf, 10) != int(cpf[10]-'0') {
		return "", errors.New("CPF inválido")
	}

	return cpf, nil
}

func checkDigit(cpf string, length int) int {
	sum := 0
	for i := 0; i < length; i++ {
		sum += int(cpf[i]-'0') * (length + 1 - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		rest = 0
	}
	return rest
}
