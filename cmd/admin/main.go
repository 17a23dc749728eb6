package main

import (
	"log"
	"os"

	"github.com/sefimap/manager/internal/config"
	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/services"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags)

	cfg, err := config.Load()
	errAndDie(err)
	services.DefaultMontantRequis = cfg.MontantRequis
	services.PhonePrefix = cfg.PhonePrefix

	conn, err := db.Open(cfg.DatabaseURL)
	errAndDie(err)

	cli := commandLine{db: conn, out: os.Stdout, secret: []byte(cfg.JWTSecret)}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("error: %+v", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatalf("%+v", err)
	}
}
