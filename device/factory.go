package device

// Factory builds allow-list entries from command line device specs.
type Factory interface {
	FromSpec(spec DeviceSpec) (Thermometer, error)
}

type FactoryDocs interface {
	Help() string
}
