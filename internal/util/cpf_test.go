package util

import "testing"

func TestNormalizeCPF(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"valido com pontuacao", "529.982.247-25", "52998224725", false},
		{"valido sem pontuacao", "52998224725", "52998224725", false},
		{"digito verificador errado", "529.982.247-26", "", true},
		{"curto", "1234567890", "", true},
		{"todos iguais", "111.111.111-11", "", true},
		{"letras", "529a82247-25", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeCPF(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
}
