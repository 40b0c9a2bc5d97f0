package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/identity"
	"github.com/trezcool/shule/core/profile"
	"github.com/trezcool/shule/core/registration"
	emailsvc "github.com/trezcool/shule/services/email"
	sendgridmail "github.com/trezcool/shule/services/email/sendgrid"
	restidp "github.com/trezcool/shule/services/identity/rest"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	pgrepos "github.com/trezcool/shule/storage/database/postgres"
	"github.com/trezcool/shule/storage/policy"
)

func main() {
	conf, err := core.NewConfig()
	errAndDie(err)

	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lshortfile)
	var logger core.Logger
	if conf.Debug {
		logger = logsvc.NewConsoleLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, conf)
	}

	// set up validation
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	registration.RegisterValidators(validate, translator)

	// set up DB
	db, err := database.Open(conf.Database.DSN)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Migrate(db))

	// every collection access goes through the policy layer
	repo := policy.NewStore(pgrepos.NewProfileRepository(db))

	var alloc profile.Allocator
	if conf.Enrollment.UseSequence {
		alloc = profile.NewSequenceAllocator(repo)
	} else {
		alloc = profile.NewCountingAllocator(repo)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = sendgridmail.NewService(conf, logger)
	}

	var provider identity.Provider = restidp.NewService(conf)

	profileSvc := profile.NewService(repo, alloc, mailSvc, logger, conf)
	registrationSvc := registration.NewService(provider, profileSvc, validate, logger, conf)

	// start API server
	app := echoapi.NewServer(&echoapi.Options{
		Conf:            conf,
		RegistrationSvc: registrationSvc,
		ProfileSvc:      profileSvc,
		Provider:        provider,
		Translator:      translator,
	})
	app.Start()
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
