package rotation

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// compressFile gzips source into target and removes source on success
func compressFile(source string, target string) error {
	input, oerr := os.Open(source)
	if oerr != nil {
		return oerr
	}
	defer input.Close()

	tmpPath := target + ".tmp"
	output, cerr := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if cerr != nil {
		return cerr
	}
	writer := gzip.NewWriter(output)
	if _, err := io.Copy(writer, input); err != nil {
		writer.Close()
		output.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("error compressing '%s': %w", source, err)
	}
	if err := writer.Close(); err != nil {
		output.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("error compressing '%s': %w", source, err)
	}
	if err := output.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Remove(source)
}
