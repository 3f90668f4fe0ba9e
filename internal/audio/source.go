package audio

// Kind distinguishes the microphone from every other source. The mixer
// applies the microphone mute flag to Microphone sources and the game mute
// flag to everything else.
type Kind int

const (
	Generic Kind = iota
	Microphone
)

func (k Kind) String() string {
	if k == Microphone {
		return "microphone"
	}
	return "generic"
}

// Source is the capability set the mixer needs from an audio producer.
type Source interface {
	Name() string
	Kind() Kind

	// AvailableFrames reports how many whole frames of frameSize samples
	// are queued.
	AvailableFrames(frameSize int) int
	// Drain removes up to count whole frames from the head of the queue and
	// returns their samples.
	Drain(frameSize, count int) []float32
	Level() float32

	EnableCapture()
	DisableCapture()

	Volume() float32
	SetVolume(v float32)
}
