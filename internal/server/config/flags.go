package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/claimgate/internal/flagx"
)

// serverFlags are the flags owned by parseFlags. Everything else on the
// command line is left to other parsers.
var serverFlags = []string{"-a", "-g", "-d", "-s", "-l", "-t", "-m", "-o", "-r", "-b", "-e"}

// parseFlags overlays command-line flags onto config.
//
//	-a string   HTTP listen address (e.g. ":8000")
//	-g string   gRPC health listen address
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret
//	-l string   log level (debug, info, warn, error)
//	-t float    confidence threshold
//	-m string   classifier URL
//	-o string   Ollama base URL
//	-r string   domain blocklist file
//	-b string   S3 bucket for page snapshots (empty disables archiving)
//	-e string   S3 base endpoint
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP listen address")
	fs.StringVar(&config.GRPCHealthAddr, "g", config.GRPCHealthAddr, "gRPC health listen address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.Float64Var(&config.ConfidenceThreshold, "t", config.ConfidenceThreshold, "confidence threshold")
	fs.StringVar(&config.ClassifierURL, "m", config.ClassifierURL, "classifier URL")
	fs.StringVar(&config.EmbedderURL, "o", config.EmbedderURL, "Ollama base URL")
	fs.StringVar(&config.BlocklistPath, "r", config.BlocklistPath, "domain blocklist file")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	return fs.Parse(flagx.FilterArgs(args, serverFlags))
}
