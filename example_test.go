package aether_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/aether"
)

func Example() {
	ctx := context.Background()

	db, err := aether.Open(ctx, aether.WithShards(2))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	king, _ := db.Insert(ctx, []float32{1, 1, 1})
	_, _ = db.Insert(ctx, []float32{0, 0, 1})

	matches, err := db.Search(ctx, []float32{1, 1, 0.9}, 1)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(matches[0].ID == king)
	fmt.Printf("%.3f\n", matches[0].Score)
	// Output:
	// true
	// 0.999
}

func ExampleDB_Search_zeroVector() {
	ctx := context.Background()

	db, _ := aether.Open(ctx)
	defer db.Close()

	_, _ = db.Insert(ctx, []float32{0, 0, 0})

	matches, _ := db.Search(ctx, []float32{1, 2, 3}, 0)
	fmt.Println(len(matches), matches[0].Score)
	// Output:
	// 1 0
}
