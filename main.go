/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/siddhi-app/apiserver/cmd"

func main() {
	cmd.Execute()
}
