package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"educheck/internal/models"
)

// SysfsEnumerator discovers V4L2 devices under /sys/class/video4linux.
type SysfsEnumerator struct {
	Root   string // sysfs class directory
	DevDir string // where device nodes live, normally /dev
}

// NewSysfsEnumerator returns an enumerator for root with nodes in /dev.
func NewSysfsEnumerator(root string) *SysfsEnumerator {
	return &SysfsEnumerator{Root: root, DevDir: "/dev"}
}

func (s *SysfsEnumerator) Enumerate(ctx context.Context) ([]models.CameraDevice, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.Root, err)
	}

	type node struct {
		num    int
		device models.CameraDevice
	}
	var nodes []node

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := entry.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		num, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}

		// index != 0 oznacza węzeł metadanych, nie strumień wideo
		if idx := readAttr(filepath.Join(s.Root, name, "index")); idx != "" && idx != "0" {
			continue
		}

		label := readAttr(filepath.Join(s.Root, name, "name"))
		if label == "" {
			label = name
		}

		nodes = append(nodes, node{
			num: num,
			device: models.CameraDevice{
				ID:    filepath.Join(s.DevDir, name),
				Label: label,
				Kind:  models.KindVideoInput,
			},
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].num < nodes[j].num })

	devices := make([]models.CameraDevice, 0, len(nodes))
	for _, n := range nodes {
		devices = append(devices, n.device)
	}
	return devices, nil
}

func readAttr(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
