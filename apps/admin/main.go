package main

import (
	"log"
	"os"

	dig_container "github.com/trezcool/companion/apps/api/di/dig"
	"github.com/trezcool/companion/core/gate"
	"github.com/trezcool/companion/core/identity"
	"github.com/trezcool/companion/core/user"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	var cli commandLine
	var storage *dig_container.Storage
	c := dig_container.New(dig_container.Options{})
	errAndDie(c.Invoke(func(
		s *dig_container.Storage,
		g *gate.Gate,
		profiles *user.Service,
		provider identity.Provider,
	) {
		storage = s
		cli = commandLine{
			gate:     g,
			profiles: profiles,
			provider: provider,
			db:       s.SQL,
			out:      os.Stdout,
		}
	}))

	err := cli.run(os.Args)
	if cerr := storage.Close(); cerr != nil {
		logger.Printf("closing storage: %s\n", cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
