package config

import "github.com/danmuck/snestrace/internal/livesession"

// LiveSession returns the manager configuration described by c.
func (c Config) LiveSession() livesession.Config {
	return livesession.Config{Link: c.Link, Import: c.Import}
}

// Params addresses the configured emulator.
func (c Config) Params() livesession.Params {
	return livesession.Params{
		Host:           c.Emulator.Host,
		Port:           c.Emulator.Port,
		ConnectTimeout: c.Link.Session.ConnectTimeout,
		ReceiveTimeout: c.Link.Session.ReadTimeout,
	}
}
