// Package config loads the runtime settings of strata.
//
// # Overview
//
// Settings come from a single file, strata.yaml by default. Values missing
// from the file keep their defaults, and STRATA_* environment variables
// override both:
//
//	codedir: /etc/strata/code
//	environmentpath: /etc/strata/code/environments
//	environment: production
//	hiera_config: /etc/strata/hiera.yaml
//	data_binding: hiera        # or none
//	strict: warning            # off, warning or error
//	starlark_timeout: 30s
//	logging:
//	  level: info
//	  format: console
//	metrics:
//	  enabled: false
//	  listen_address: ":9090"
//	tracing:
//	  enabled: false
//	  exporter: none           # otlp, stdout or none
//
// A settings file ending in .cue is compiled with CUE and unified with the
// closed #Settings schema before it is decoded, so unknown fields and out of
// range values are reported with their CUE position.
//
// The final settings are validated with go-playground/validator struct tags.
//
// # Usage Example
//
//	settings, err := config.Load(afero.NewOsFs(), config.DefaultPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(settings.ModuleDir())
package config
