// Command unlock sends a single unlock datagram to the smart lock.
package main

import (
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/eblooo/esp-smart-lock/lock"
)

var debug bool
var targetHost string
var targetPort int
var message string

func init() {
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.StringVar(&targetHost, "host", lock.DefaultEndpoint.Host, "lock address")
	flag.IntVar(&targetPort, "p", int(lock.DefaultEndpoint.Port), "lock port")
	flag.StringVar(&message, "m", string(lock.DefaultPayload), "message to send")
}

func main() {
	var err error
	var logger *zap.Logger

	flag.Parse()

	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		log.Fatalln("failed to create logger:", err)
	}

	if targetPort < 1 || targetPort > 65535 {
		logger.Sugar().Fatalf("invalid port %d", targetPort)
	}

	ep := lock.Endpoint{
		Host: targetHost,
		Port: uint16(targetPort),
	}

	n, err := lock.NewSender(logger).Send(ep, []byte(message))
	if err != nil {
		logger.Error("failed to send unlock message",
			zap.String("endpoint", ep.String()),
			zap.Error(err),
		)
		os.Exit(1)
	}

	logger.Info("unlock message sent",
		zap.String("endpoint", ep.String()),
		zap.Int("bytes", n),
	)
}
