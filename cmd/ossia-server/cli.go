// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import "flag"

type cliFlags struct {
	configFile string
	gops       bool
	stopEarly  bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configFile, "config", "./config.json", "Overwrite the default config options by those specified in `config.json`")
	flag.BoolVar(&f.gops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.BoolVar(&f.stopEarly, "no-server", false, "Initialize configuration and stop right after, without opening any protocol binding")
	flag.Parse()
	return f
}
