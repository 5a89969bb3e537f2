// Package config provides configuration parsing for commutesync.
//
// The configuration is stored in commutesync.json at the project root.
// Every field can be overridden by a COMMUTESYNC_* environment variable,
// which is applied after the file and before defaults.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "localhost",
//	    "port": 3000,
//	    "wsPath": "/ws"
//	  },
//	  "storage": {
//	    "driver": "sqlite",
//	    "path": "commutesync.db"
//	  },
//	  "sync": {
//	    "reconcileTimeout": "1s",
//	    "namespace": "UPRENT_"
//	  },
//	  "proxy": {
//	    "hosts": ["localhost", "127.0.0.1"]
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "path": "/metrics"
//	  },
//	  "log": {
//	    "level": "info"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
