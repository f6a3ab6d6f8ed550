package research

import "testing"

func TestValidateCitations(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{
			name: "every citation resolves",
			body: "Acme is a hospital group [1] hiring in Boston [2].\n\nSources:\n[1] Acme Health - https://acme.example/about\n[2] Careers - https://acme.example/jobs",
		},
		{
			name:    "citation without a listed source",
			body:    "Acme is a hospital group [3].\n\nSources:\n[1] Acme Health - https://acme.example/about",
			wantErr: true,
		},
		{
			name:    "cites but has no sources section",
			body:    "Acme is a hospital group [1].",
			wantErr: true,
		},
		{
			name:    "no sources section at all",
			body:    "Acme is a hospital group.",
			wantErr: true,
		},
		{
			name:    "empty sources section",
			body:    "Acme is a hospital group.\n\nSources:\n",
			wantErr: true,
		},
		{
			name: "uncited sources are allowed",
			body: "Acme is a hospital group [1].\n\nSources:\n[1] Acme Health - https://acme.example/about\n[2] Unused - https://acme.example/extra",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCitations(tt.body)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCitations() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
