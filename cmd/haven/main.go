// Command haven runs the Haven content workspace backend.
package main

func main() {
	Execute()
}
