// estatepost - real-estate marketing pipeline server
package main

func main() {
	Execute()
}
