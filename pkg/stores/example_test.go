package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/webpilot/webpilot/pkg/stores"
	"github.com/webpilot/webpilot/pkg/workflow"
)

func ExampleSQLiteStore_SaveWorkflow() {
	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	wf := &workflow.Workflow{
		Name: "login",
		Actions: []workflow.Action{
			{
				Name:    "open-login-page",
				Variant: workflow.VariantNavigation,
				Navigation: &workflow.NavigationPayload{
					URL: "https://example.com/login",
				},
			},
		},
	}

	record, err := store.SaveWorkflow(ctx, wf)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("saved %s at version %d\n", record.Name, record.Version)
	// Output: saved login at version 1
}
