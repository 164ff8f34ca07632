package sale

type IDGenerator interface {
	NewID() string
}
