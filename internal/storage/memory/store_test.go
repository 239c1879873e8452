package memory

import (
	"testing"

	"github.com/tjfontaine/chatwidget-gateway/internal/storage"
	"github.com/tjfontaine/chatwidget-gateway/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.SessionStore {
		return New()
	})
}
