package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Eppu/micro-poll/broadcast"
	"github.com/Eppu/micro-poll/configure"
	"github.com/Eppu/micro-poll/mongo"
	"github.com/Eppu/micro-poll/poll"
	"github.com/Eppu/micro-poll/redis"
	"github.com/Eppu/micro-poll/server"
)

func main() {
	log.Infoln("Application Starting...")

	configCode := configure.Config.GetInt("exit_code")
	if configCode > 125 || configCode < 0 {
		log.Warnf("Invalid exit code specified in config (%v), using 0 as new exit code.", configCode)
		configCode = 0
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	hub := broadcast.NewHub(broadcast.NewRedisTransport(redis.Client))
	store := poll.NewMongoStore(mongo.Database)
	svc := poll.NewService(store, hub)

	// Rebuild closure timers from persisted state before taking traffic.
	if err := svc.RestartTimers(mongo.Ctx); err != nil {
		log.Errorf("timers, err=%v", err)
	}

	s := server.NewServer(server.Options{
		Network:     configure.Config.GetString("listener_network"),
		Address:     configure.Config.GetString("listener_address"),
		Service:     svc,
		Hub:         hub,
		Limits:      server.NewRedisCounter(redis.Client),
		CreateLimit: configure.Config.GetInt("create_rate_limit"),
		VoteLimit:   configure.Config.GetInt("vote_rate_limit"),
	})

	go func() {
		sig := <-c
		log.Infof("sig=%v, gracefully shutting down...", sig)
		start := time.Now().UnixNano()

		wg := sync.WaitGroup{}
		wg.Add(1)

		go func() {
			defer wg.Done()
			if err := s.Shutdown(); err != nil {
				log.Errorf("server, shutdown=%v", err)
			}
			hub.Close()
		}()

		wg.Wait()

		log.Infof("Shutdown took, %.2fms", float64(time.Now().UnixNano()-start)/10e5)
		os.Exit(configCode)
	}()

	log.Infoln("Application Started.")

	select {}
}
