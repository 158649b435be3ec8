package naming

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	wrpc "github.com/source-build/go-wrpc"
)

// FileService treats address as a filesystem path to a text file holding
// one "host:port" per line (blank lines and "#"-prefixed comments
// ignored). Refresh re-reads the file on every call, so an operator can
// edit it and have a running process pick up the change on the next
// refresh tick.
type FileService struct {
	base
}

func NewFileService() *FileService {
	return &FileService{}
}

func (f *FileService) Refresh(_ context.Context, address string) error {
	file, err := os.Open(address)
	if err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrNamingBackend, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", wrpc.ErrNamingBackend, err)
	}

	f.notify(parseHostPorts(lines))
	return nil
}
