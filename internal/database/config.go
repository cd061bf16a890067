package database

import "time"

type Config struct {
	// Path to the bbolt file holding documents, users and actors
	FilePath string `envconfig:"CAROUSING_DB_PATH" default:"carousing.db"`

	// How long Open waits for the file lock held by another process
	OpenTimeout time.Duration `envconfig:"CAROUSING_DB_OPEN_TIMEOUT" default:"5s"`
}
