// Package config loads and validates the SoundMesh hub configuration.
//
// Configuration comes from a YAML file selected by SOUNDMESH_CONFIG (or the
// default path), with environment variables overriding individual values so
// secrets never have to live in the file. Load applies defaults, then
// validates both the service sections and the inventory.
//
// The Inventory section is the authoritative zone/client/stream topology;
// persisted runtime state is discarded when its fingerprint changes.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.System.Name)
package config
