// Package scanner re-exports the rule catalog and the matching engines under one import.
package scanner

import (
	"github.com/CompassSecurity/jsleek/pkg/scanner/engine"
	"github.com/CompassSecurity/jsleek/pkg/scanner/rules"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
)

type SecretFinding = types.SecretFinding
type EndpointFinding = types.EndpointFinding
type SecretRule = types.SecretRule
type EndpointRule = types.EndpointRule
type Method = types.Method
type Catalog = rules.Catalog
type Options = engine.Options

var DefaultCatalog = rules.Default
var LoadCatalog = rules.Load
var DefaultOptions = engine.DefaultOptions

var NewSecretScanner = engine.NewSecretScanner
var NewEndpointExtractor = engine.NewEndpointExtractor
var NewTruffleHog = engine.NewTruffleHog

var TierOf = types.TierOf
