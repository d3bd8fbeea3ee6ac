package main

import (
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// defaultFactory is the address new contract addresses are derived from when
// FACTORY_ADDRESS is unset.
const defaultFactory = "0x00000000000000000000000000000000000fac70"

type Config struct {
	Port            int
	DBPath          string
	LogLevel        logrus.Level
	ShutdownTimeout time.Duration
	FactoryAddress  common.Address
}

func LoadConfig() *Config {
	port := 8090
	if portStr := os.Getenv("PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	dbPath := "./data/vesting.db"
	if p := os.Getenv("DB_PATH"); p != "" {
		dbPath = p
	}

	level := logrus.InfoLevel
	if l, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		level = l
	}

	timeout := 5 * time.Second
	if d, err := time.ParseDuration(os.Getenv("SHUTDOWN_TIMEOUT")); err == nil && d > 0 {
		timeout = d
	}

	factory := common.HexToAddress(defaultFactory)
	if f := os.Getenv("FACTORY_ADDRESS"); common.IsHexAddress(f) {
		factory = common.HexToAddress(f)
	}

	return &Config{
		Port:            port,
		DBPath:          dbPath,
		LogLevel:        level,
		ShutdownTimeout: timeout,
		FactoryAddress:  factory,
	}
}
