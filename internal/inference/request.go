package inference

// ParamOptions carries per-request overrides. Nil fields fall back to Defaults.
type ParamOptions struct {
	Temperature *float64
	TopP        *float64
	MaxGenLen   *int
	LogProbs    *bool
	Echo        *bool
	Seed        *int64
}

// Defaults are the server- or CLI-wide generation settings. Nil or
// out-of-range fields use the built-in values.
type Defaults struct {
	Temperature *float64
	TopP        *float64
	MaxGenLen   *int
	Seed        *int64
}

const (
	DefaultTemperature = 0.6
	DefaultTopP        = 0.9
)

// ResolveParams merges opts over defaults over the built-in values. An unset
// MaxGenLen resolves to maxSeqLen-1.
func ResolveParams(opts ParamOptions, defaults Defaults, maxSeqLen int) Params {
	p := Params{
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxGenLen:   maxSeqLen - 1,
		Seed:        -1,
	}

	if defaults.Temperature != nil && *defaults.Temperature >= 0 {
		p.Temperature = *defaults.Temperature
	}
	if defaults.TopP != nil && *defaults.TopP > 0 && *defaults.TopP <= 1 {
		p.TopP = *defaults.TopP
	}
	if defaults.MaxGenLen != nil && *defaults.MaxGenLen > 0 {
		p.MaxGenLen = *defaults.MaxGenLen
	}
	if defaults.Seed != nil {
		p.Seed = *defaults.Seed
	}

	if opts.Temperature != nil {
		p.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		p.TopP = *opts.TopP
	}
	if opts.MaxGenLen != nil {
		p.MaxGenLen = *opts.MaxGenLen
	}
	if opts.LogProbs != nil {
		p.LogProbs = *opts.LogProbs
	}
	if opts.Echo != nil {
		p.Echo = *opts.Echo
	}
	if opts.Seed != nil {
		p.Seed = *opts.Seed
	}
	return p
}
