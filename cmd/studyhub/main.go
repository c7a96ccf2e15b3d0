package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/campushub/studyhub/api"
	"github.com/campushub/studyhub/auth"
	"github.com/campushub/studyhub/config"
	"github.com/campushub/studyhub/globals"
	"github.com/campushub/studyhub/persistence"
	"github.com/campushub/studyhub/upload"
	"github.com/campushub/studyhub/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "", "http service address (including port), overrides the configuration")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()
	log.SetFlags(0)

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	verifier, err := auth.NewVerifier(globalConfig)
	if err != nil {
		panic(err)
	}
	relay, err := upload.NewRelay(globalConfig)
	if err != nil {
		panic(err)
	}

	hub := ws.NewHub(globalConfig, persister)
	go hub.Run()
	defer hub.Stop()

	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if spec := globalConfig.UploadConfig.SweepSpec; spec != "" {
		_, err := cronRunner.AddFunc(spec, func() {
			if err := relay.Sweep(persister); err != nil {
				globals.AppLogger.Error("upload sweep failed", "error", err)
			}
		})
		if err != nil {
			panic(err)
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	router := api.NewRouter(persister, verifier, relay, hub, globalConfig)

	listenAddr := globalConfig.ServerConfig.Addr
	if *addr != "" {
		listenAddr = *addr
	}
	globals.AppLogger.Info("listening", "addr", listenAddr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(listenAddr, *sslCert, *sslKey, router)
	} else {
		err = http.ListenAndServe(listenAddr, router)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}
