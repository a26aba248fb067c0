package jir

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/kolkov/dryrun/internal/ir"
)

// CompressedExt marks zstd-compressed jir files.
const CompressedExt = ".zst"

// encoder and decoder are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// ReadFile parses the jir file at path, decompressing it first when the
// name ends in .zst.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, CompressedExt) {
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
	}
	return Parse(path, data)
}

// WriteFile prints classes to path, compressing when the name ends in .zst.
func WriteFile(path string, classes []*ir.Class) error {
	var buf bytes.Buffer
	if err := Print(&buf, classes); err != nil {
		return err
	}
	data := buf.Bytes()
	if strings.HasSuffix(path, CompressedExt) {
		data = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadProgram reads every file in paths into a single program.
func LoadProgram(p *ir.Program, paths ...string) (map[string][]*ir.Class, error) {
	byFile := make(map[string][]*ir.Class, len(paths))
	for _, path := range paths {
		f, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := f.AddTo(p); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		byFile[path] = f.Classes
	}
	return byFile, nil
}
