package position

// Provider interface defines the methods for position providers
type Provider interface {
	GetLocation() (Location, error)
	Close() error
}
