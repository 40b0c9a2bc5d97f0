package main

import (
	"log"
	"os"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/profile"
	restidp "github.com/trezcool/shule/services/identity/rest"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	pgrepos "github.com/trezcool/shule/storage/database/postgres"
	"github.com/trezcool/shule/storage/policy"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	// set up DB
	db, err := database.Open(conf.Database.DSN)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	repo := policy.NewStore(pgrepos.NewProfileRepository(db))

	var alloc profile.Allocator
	if conf.Enrollment.UseSequence {
		alloc = profile.NewSequenceAllocator(repo)
	} else {
		alloc = profile.NewCountingAllocator(repo)
	}

	// start CLI
	cli := commandLine{
		db:       db,
		profSvc:  profile.NewService(repo, alloc, nil, logsvc.NewConsoleLogger(logger), conf),
		provider: restidp.NewService(conf),
	}
	if err := cli.run(os.Args); err != nil {
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
