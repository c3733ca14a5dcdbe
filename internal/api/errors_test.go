package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound("lattice %q not found", "x"), http.StatusNotFound},
		{"validation", domain.ErrValidation("bad"), http.StatusBadRequest},
		{"conflict", domain.ErrConflict("taken"), http.StatusConflict},
		{"wrapped", fmt.Errorf("build: %w", domain.ErrNotFound("column")), http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatusFromDomainError(tt.err))
		})
	}
}
