package session

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsAreUnderSessionDir(t *testing.T) {
	dir := Dir("test")
	paths := map[string]string{
		"device db":   DeviceDBPath("test"),
		"schedule db": ScheduleDBPath("test"),
		"uploads":     UploadDir("test"),
		"log":         LogPath("test"),
	}
	for label, p := range paths {
		if !strings.HasPrefix(p, dir+string(filepath.Separator)) {
			t.Errorf("%s path %q not under session dir %q", label, p, dir)
		}
	}
}

func TestConfigPathUnderBase(t *testing.T) {
	if !strings.HasPrefix(ConfigPath(), BaseDir()) {
		t.Errorf("config path %q not under base dir %q", ConfigPath(), BaseDir())
	}
}
