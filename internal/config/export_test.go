package config

// EnvMapper exposes envMapper for tests.
var EnvMapper = envMapper
