package naming

import (
	"context"
	"strings"

	wrpc "github.com/source-build/go-wrpc"
)

// ListService treats address as a comma-separated "host:port,host:port"
// string, the simplest naming strategy: no external lookup, just a static
// set parsed fresh on every Refresh call.
type ListService struct {
	base
}

func NewListService() *ListService {
	return &ListService{}
}

func (l *ListService) Refresh(_ context.Context, address string) error {
	raw := strings.Split(address, ",")
	l.notify(parseHostPorts(raw))
	return nil
}
