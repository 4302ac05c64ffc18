// Command cli animates a single grid search in the terminal. It either
// generates random obstacles or loads a YAML map file.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"cyberia-pathway/instance"
	"cyberia-pathway/pathfinding"
)

type rect struct {
	minX, minY, maxX, maxY int
}

func (a rect) overlaps(b rect) bool {
	return a.maxX >= b.minX && a.minX <= b.maxX && a.maxY >= b.minY && a.minY <= b.maxY
}

// generateGrid fills a cols x rows grid with random rectangular walls that
// keep clear of start and end.
func generateGrid(cols, rows, numObstacles int, start, end pathfinding.Cell) [][]float64 {
	grid := make([][]float64, rows)
	for y := range grid {
		grid[y] = make([]float64, cols)
	}

	maxW := max(1, cols/10)
	maxH := max(1, rows/10)
	startRect := rect{start.X - 1, start.Y - 1, start.X + 1, start.Y + 1}
	endRect := rect{end.X - 1, end.Y - 1, end.X + 1, end.Y + 1}

	for placed, attempts := 0, 0; placed < numObstacles && attempts < numObstacles*10; attempts++ {
		minX, minY := rand.Intn(cols), rand.Intn(rows)
		obs := rect{minX, minY, min(cols-1, minX+rand.Intn(maxW)), min(rows-1, minY+rand.Intn(maxH))}
		if obs.overlaps(startRect) || obs.overlaps(endRect) {
			continue
		}
		for y := obs.minY; y <= obs.maxY; y++ {
			for x := obs.minX; x <= obs.maxX; x++ {
				grid[y][x] = pathfinding.NoTravel
			}
		}
		placed++
	}
	return grid
}

// loadGrid builds the cost grid of the map stored at path.
func loadGrid(path string) (pathfinding.GridInfo, error) {
	world := instance.NewWorld(0)
	id, err := world.LoadMapFile(path)
	if err != nil {
		return pathfinding.GridInfo{}, err
	}
	return pathfinding.NewGridBuilder(world, nil).Build(id, pathfinding.IgnoreList{})
}

func search(info pathfinding.GridInfo, start, end pathfinding.Cell, diagonal, cornerCutting bool) (pathfinding.Result, error) {
	e := pathfinding.NewEngine(
		pathfinding.WithCompletion(pathfinding.ImmediateCompletion),
		pathfinding.WithDiagonals(diagonal),
		pathfinding.WithCornerCutting(cornerCutting),
	)
	e.SetAcceptableTiles(info.Accepted...)
	e.SetGrid(info.Grid)
	for _, w := range info.Weights {
		e.SetTileCost(w, w)
	}

	var res pathfinding.Result
	if _, err := e.FindPath(start.X, start.Y, end.X, end.Y, func(r pathfinding.Result) { res = r }); err != nil {
		return res, err
	}
	e.Calculate()
	return res, nil
}

// printGrid draws the grid with the first step+1 cells of the path.
func printGrid(grid [][]float64, start, end pathfinding.Cell, path []pathfinding.Cell, step int) {
	fmt.Print("\033[2J\033[H")
	fmt.Println("--------------------------------------------------")
	fmt.Printf("Animating pathfinding... Step %d\n", step+1)
	fmt.Printf("Current Position: (%d, %d)\n", path[step].X, path[step].Y)
	fmt.Println("--------------------------------------------------")

	trail := make(map[pathfinding.Cell]bool, step+1)
	for _, c := range path[:step+1] {
		trail[c] = true
	}
	for y, row := range grid {
		for x, v := range row {
			c := pathfinding.Cell{X: x, Y: y}
			switch {
			case c == path[step]:
				fmt.Print("X ")
			case c == start:
				fmt.Print("S ")
			case c == end:
				fmt.Print("E ")
			case v == pathfinding.NoTravel:
				fmt.Print("# ")
			case trail[c]:
				fmt.Print("+ ")
			case v > pathfinding.Passable:
				fmt.Print("~ ")
			default:
				fmt.Print(". ")
			}
		}
		fmt.Println()
	}
	time.Sleep(50 * time.Millisecond)
}

func main() {
	mapFile := flag.String("map", "", "YAML map file to search instead of a random grid")
	diagonal := flag.Bool("diagonal", false, "allow diagonal steps")
	noCorners := flag.Bool("no-corner-cutting", false, "forbid diagonals that clip a wall corner")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: cli [flags] <start_x> <start_y> <end_x> <end_y> [<grid_width> <grid_height>]")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if (*mapFile == "" && len(args) != 6) || (*mapFile != "" && len(args) != 4) {
		flag.Usage()
		os.Exit(1)
	}
	nums := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			fmt.Printf("invalid number %q\n", a)
			os.Exit(1)
		}
		nums[i] = v
	}
	start := pathfinding.Cell{X: nums[0], Y: nums[1]}
	end := pathfinding.Cell{X: nums[2], Y: nums[3]}

	attempts := 10
	var info pathfinding.GridInfo
	if *mapFile != "" {
		var err error
		if info, err = loadGrid(*mapFile); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if *mapFile == "" {
			cols, rows := nums[4], nums[5]
			info = pathfinding.GridInfo{
				Grid:     generateGrid(cols, rows, cols*rows/80, start, end),
				Accepted: []float64{pathfinding.Passable},
			}
		}

		fmt.Println("--------------------------------------------------")
		fmt.Printf("Attempt %d of %d:\n", attempt, attempts)
		fmt.Printf("  Grid size: %dx%d\n", len(info.Grid[0]), len(info.Grid))
		fmt.Printf("  Start: (%d, %d)  End: (%d, %d)\n", start.X, start.Y, end.X, end.Y)
		fmt.Println("--------------------------------------------------")

		res, err := search(info, start, end, *diagonal, !*noCorners)
		if err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		if res.Found {
			path := res.Path
			if len(path) == 0 {
				path = []pathfinding.Cell{start}
			}
			for i := range path {
				printGrid(info.Grid, start, end, path, i)
			}
			fmt.Println("--------------------------------------------------")
			fmt.Println("Animation complete. Total path length:", len(path), "steps.")
			os.Exit(0)
		}
		fmt.Printf("No path in attempt %d. Retrying...\n", attempt)
	}

	fmt.Println("--------------------------------------------------")
	fmt.Printf("Failed to find a path after %d attempts. Exiting.\n", attempts)
	os.Exit(1)
}
