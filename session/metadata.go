package session

import (
	"os"

	"github.com/shirou/gopsutil/process"

	"chat-sync/domain"
)

// CollectClientMetadata captures who is holding a claim: hostname, pid and
// process name. Best effort, every field may stay empty; the claim is valid
// without it.
func CollectClientMetadata() domain.ClientMetadata {
	meta := domain.ClientMetadata{PID: int32(os.Getpid())}
	if host, err := os.Hostname(); err == nil {
		meta.Hostname = host
	}
	if p, err := process.NewProcess(meta.PID); err == nil {
		if name, err := p.Name(); err == nil {
			meta.Process = name
		}
	}
	return meta
}
