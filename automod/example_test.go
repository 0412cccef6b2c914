package automod_test

import (
	"context"
	"fmt"

	"github.com/antigcast/antigcast/automod"
	"github.com/antigcast/antigcast/automod/engine"
)

func Example() {
	ctx := context.Background()
	eng, _ := engine.EngineTestFixture()

	_ = eng.Rules.SetEnabled(ctx, -1001, true)
	_ = eng.Rules.AddTerm(ctx, -1001, automod.DenyList, "vcs")

	for _, text := range []string{"good morning", "good morning", "cheap VCS here"} {
		var d automod.Decision = eng.Classify(ctx, -1001, text)
		fmt.Println(d.Suppress, d.Reason)
	}
	// Output:
	// false clean
	// true duplicate
	// true denylisted
}
