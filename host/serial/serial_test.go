package serial

import (
	"testing"
	"time"

	"gobricks/config"
)

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.DefaultConfig().Serial)
	if c.Baud != 115200 || c.ReadTimeout != 100*time.Millisecond {
		t.Errorf("config %+v", c)
	}
}

func TestOpenWithoutDevice(t *testing.T) {
	if _, err := Open(DefaultConfig("")); err == nil {
		t.Error("opened a port without a device")
	}
	if _, err := Open(nil); err == nil {
		t.Error("opened a port without a config")
	}
}
