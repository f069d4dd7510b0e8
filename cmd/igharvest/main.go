// Command igharvest scrapes due Instagram accounts through Apify and serves
// the admin API.
package main

func main() {
	Execute()
}
