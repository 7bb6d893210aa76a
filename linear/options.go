package linear

import "github.com/gelato-ml/sorvete/pkg/log"

// Option is a function that configures LinearRegression
type Option func(*LinearRegression)

// WithFitIntercept sets whether to calculate the intercept. When false the
// fitted line passes through the origin.
func WithFitIntercept(fit bool) Option {
	return func(lr *LinearRegression) {
		lr.FitIntercept = fit
	}
}

// WithFeatureNames records the names of the input columns, in order. They
// travel with the exported weights.
func WithFeatureNames(names ...string) Option {
	return func(lr *LinearRegression) {
		lr.FeatureNames = append([]string(nil), names...)
	}
}

// WithLogger replaces the package logger.
func WithLogger(logger log.Logger) Option {
	return func(lr *LinearRegression) {
		lr.logger = logger
	}
}
