package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/rcliao/commentlens/internal/clustering"
	"github.com/rcliao/commentlens/internal/core"
)

func main() {
	metricName := flag.String("metric", "euclidean", "distance metric: euclidean or cosine")
	minClusterSize := flag.Int("min-cluster-size", 3, "minimum cluster size")
	flag.Parse()

	metric, err := clustering.ParseMetric(*metricName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== HDBSCAN Cluster Extraction Test ===")
	fmt.Println()

	// 3 well-separated groups of 5 points each
	data := [][]float32{
		// Group 1: Close to (0, 0, 0)
		{0.0, 0.0, 0.0}, {0.1, 0.1, 0.1}, {0.2, 0.2, 0.2}, {-0.1, -0.1, -0.1}, {0.15, 0.15, 0.15},
		// Group 2: Close to (10, 10, 10)
		{10.0, 10.0, 10.0}, {10.1, 10.1, 10.1}, {10.2, 10.2, 10.2}, {9.9, 9.9, 9.9}, {10.15, 10.15, 10.15},
		// Group 3: Close to (20, 20, 20)
		{20.0, 20.0, 20.0}, {20.1, 20.1, 20.1}, {20.2, 20.2, 20.2}, {19.9, 19.9, 19.9}, {20.15, 20.15, 20.15},
		// Outliers
		{100.0, 100.0, 100.0}, {-50.0, -50.0, -50.0},
	}

	fmt.Printf("Input: %d data points (3 groups of 5 + 2 outliers), metric=%s, min_cluster_size=%d\n\n",
		len(data), metric, *minClusterSize)

	labels, err := clustering.NewHDBSCAN(metric).Cluster(data, *minClusterSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running: %v\n", err)
		os.Exit(1)
	}

	members := map[int][]int{}
	noise := 0
	for i, label := range labels {
		if label == core.NoiseCluster {
			noise++
			continue
		}
		members[label] = append(members[label], i)
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Printf("Found %d clusters:\n\n", len(ids))
	for _, id := range ids {
		points := members[id]
		centroid := make([]float32, len(data[0]))
		for _, p := range points {
			for d, v := range data[p] {
				centroid[d] += v / float32(len(points))
			}
		}
		fmt.Printf("Cluster %d:\n", id)
		fmt.Printf("  Points: %v (count: %d)\n", points, len(points))
		fmt.Printf("  Centroid: %.2f\n\n", centroid)
	}

	fmt.Printf("Total points: %d\n", len(data))
	fmt.Printf("Assigned to clusters: %d\n", len(data)-noise)
	fmt.Printf("Noise/Outliers: %d\n", noise)

	if noise == 2 {
		fmt.Println("\n✅ Success! Correctly identified 2 outliers")
	} else {
		fmt.Printf("⚠️  Expected 2 outliers, found %d\n", noise)
	}

	if len(ids) == 3 {
		fmt.Println("✅ Success! Correctly found 3 clusters")
	} else {
		fmt.Printf("⚠️  Expected 3 clusters, found %d\n", len(ids))
	}
}
