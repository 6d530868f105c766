package pkg

import "github.com/wonhochoi1/nature"

// AssertNoError panics on errors that only a programming mistake can cause.
func AssertNoError(err error) {
	if err != nil {
		nature.Logger.Error().Err(err).Msg("Error occurred that should not have occurred.")
		panic(err)
	}
}
