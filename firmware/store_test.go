package firmware

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(t.TempDir(), "1.0.0")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	return s
}

func TestSaveUpdatesLatest(t *testing.T) {
	s := newStore(t)

	if s.Latest() != "1.0.0" {
		t.Fatalf("unexpected initial latest %q", s.Latest())
	}

	image := []byte("fw-image-bytes")

	n, err := s.Save("1.1.0", bytes.NewReader(image))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len(image)) {
		t.Fatalf("expected %d bytes written, got %d", len(image), n)
	}

	if s.Latest() != "1.1.0" {
		t.Fatalf("expected latest 1.1.0, got %q", s.Latest())
	}

	got, err := os.ReadFile(s.Path("1.1.0"))
	if err != nil {
		t.Fatalf("failed to read saved image: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Fatal("stored image differs from input")
	}
}

func TestMD5(t *testing.T) {
	s := newStore(t)

	image := []byte("fw-image-bytes")
	if _, err := s.Save("1.1.0", bytes.NewReader(image)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum, err := s.MD5("1.1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := fmt.Sprintf("%x", md5.Sum(image)); sum != want {
		t.Fatalf("expected md5 %s, got %s", want, sum)
	}
}

func TestListAndDelete(t *testing.T) {
	s := newStore(t)

	for _, v := range []string{"1.0.0", "1.1.0"} {
		if _, err := s.Save(v, bytes.NewReader([]byte(v))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 images, got %d", len(list))
	}

	if list[0].Version != "1.0.0" || list[1].Version != "1.1.0" {
		t.Fatalf("unexpected list order: %s, %s", list[0].Version, list[1].Version)
	}
	if list[0].IsLatest || !list[1].IsLatest {
		t.Fatal("latest flag on wrong entry")
	}

	if err := s.Delete("1.0.0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Stat("1.0.0"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist after delete, got %v", err)
	}

	list, err = s.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 image after delete, got %d", len(list))
	}
}

func TestInvalidVersionRejected(t *testing.T) {
	s := newStore(t)

	for _, v := range []string{"", "../../etc/passwd", "1.0/..", "a b"} {
		if _, err := s.Save(v, bytes.NewReader(nil)); err == nil {
			t.Fatalf("expected error for version %q", v)
		}
		if err := s.Delete(v); err == nil {
			t.Fatalf("expected delete error for version %q", v)
		}
	}
}
