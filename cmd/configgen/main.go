package main

import (
	"flag"
	"log"

	"github.com/danmuck/donuts/internal/config"
)

func main() {
	kind := flag.String("kind", "host", "config kind: host|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	path, err := defaultPath(*kind)
	if err != nil {
		log.Fatal(err)
	}

	if *validate {
		if *input != "" {
			path = *input
		}
		switch *kind {
		case "host":
			_, err = config.LoadHostConfig(path)
		case "client":
			_, err = config.LoadClientConfig(path)
		}
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	if *output != "" {
		path = *output
	}
	if err := config.WriteTemplate(path, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, path)
}

func defaultPath(kind string) (string, error) {
	switch kind {
	case "host":
		return "cmd/donutsd/config.toml", nil
	case "client":
		return "cmd/donuts/config.toml", nil
	default:
		_, err := config.Template(kind)
		return "", err
	}
}
