package errs

import (
	"fmt"
	"testing"
)

func TestClassifyWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("forest: add item 4: %w", ErrNotFound)
	if Classify(wrapped) != KindNotFound {
		t.Errorf("expected KindNotFound, got %v", Classify(wrapped))
	}
}

func TestClassifyUnknownError(t *testing.T) {
	if Classify(fmt.Errorf("some other failure")) != KindUnknown {
		t.Errorf("expected KindUnknown for an unrelated error")
	}
}
