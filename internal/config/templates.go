package config

import (
	"fmt"
	"os"
)

// Template returns a commented config file with every default spelled out.
func Template() string {
	return defaultTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `[emulator]
host = "127.0.0.1"
port = 9998
# client-first or server-first
handshake_mode = "client-first"
client_name = "snestrace"
# 0 retries until interrupted
max_connect_attempts = 1
connect_timeout = "5s"
handshake_timeout = "5s"
receive_timeout = "500ms"
write_timeout = "2s"
# "0s" disables heartbeats
heartbeat_interval = "5s"
keepalive_interval = "250ms"
disconnect_wait = "2s"

[stream]
enabled = true
exec_trace = true
memory_access = false
cdl = true
frame_interval = 1
max_batch = 256

[import]
stage_trace_comments = false
classify_pointers = false

[rom]
path = ""
# lorom or hirom
map_mode = "lorom"

[admin]
# empty disables the admin HTTP server
listen = ""
push_interval = "1s"
# required on /stats, /stats/ws and /metrics when set
token = ""
`
