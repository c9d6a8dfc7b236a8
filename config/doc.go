// Package config loads rulenet's configuration.
//
// A Loader starts from Defaults, merges each JSON layer on top (later layers
// win, and only the fields a layer mentions are overridden) and finally
// applies environment overrides:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/production.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// # Environment Variable Overrides
//
//	RULENET_LOG_LEVEL, RULENET_LOG_FORMAT
//	RULENET_INSTANCES
//	RULENET_PROTOTYPE_MODE, RULENET_PROTOTYPE_BUCKET
//	RULENET_NATS_URLS (comma-separated), RULENET_NATS_USERNAME,
//	RULENET_NATS_PASSWORD, RULENET_NATS_TOKEN
//	RULENET_NOTIFY_ENABLED, RULENET_NOTIFY_SUBJECT
//
// # Prototype modes
//
//	none    every engine instance walks the network itself
//	memory  instances in this process share prototypes through a local cache
//	kv      prototypes are shared through a NATS JetStream KV bucket
//	hybrid  a local cache in front of the KV bucket
//
// Durations may be written as strings ("5s", "250ms"). Each layer is checked
// against a JSON schema before it is merged, so a misspelled key fails the
// load instead of being ignored.
//
// # Security
//
// Layers must be regular .json files of at most 1 MiB nesting no deeper than
// 8 levels. Relative paths may not leave the working directory. RULENET_*
// overrides are limited to 4096 bytes and may not contain NUL.
package config
